package config

import (
	"io/ioutil"

	"github.com/bwesterb/go-wattsup"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadNetworkProfile reads network settings for a meter from a YAML file:
//
//	ip: 192.168.1.50
//	gateway: 192.168.1.1
//	dns1: 192.168.1.1
//	dns2: 0.0.0.0
//	netmask: 255.255.255.0
//	dhcp: false
//	url: collector.example.com
//	port: 8080
//	post_file: /wattsup
//	user_agent: WattsUp.NET
//	interval: 1
func LoadNetworkProfile(path string) (*wattsup.NetworkInfo, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading network profile")
	}
	var ret wattsup.NetworkInfo
	if err := yaml.Unmarshal(data, &ret); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &ret, nil
}
