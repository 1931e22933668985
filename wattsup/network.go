package main

import (
	"github.com/bwesterb/go-wattsup"
	"github.com/bwesterb/go-wattsup/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type networkOptions struct {
	profile  string
	settings wattsup.NetworkInfo
}

func newNetworkCmd(a *app) *cobra.Command {
	o := &networkOptions{}
	cmd := &cobra.Command{
		Use:   "network",
		Short: "Configure the meter to post samples to a server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runNetwork(cmd, o)
		},
	}

	s := &o.settings
	f := cmd.Flags()
	f.StringVar(&o.profile, "profile", "", "YAML file with the network settings")
	f.StringVar(&s.IP, "ip", "", "static IP address of the meter")
	f.StringVar(&s.Gateway, "gateway", "", "gateway address")
	f.StringVar(&s.DNS1, "dns1", "", "primary DNS server")
	f.StringVar(&s.DNS2, "dns2", "0.0.0.0", "secondary DNS server")
	f.StringVar(&s.Netmask, "netmask", "255.255.255.0", "netmask")
	f.BoolVar(&s.DHCP, "dhcp", false, "let the meter get its address over DHCP")
	f.StringVar(&s.PostHost, "url", "", "host to post samples to (at most 40 characters)")
	f.IntVar(&s.PostPort, "port-number", 80, "port to post samples to")
	f.StringVar(&s.PostFile, "post-file", "/", "path to post samples to (at most 40 characters)")
	f.StringVar(&s.UserAgent, "user-agent", "WattsUp.NET", "user agent the meter posts with")
	f.IntVar(&s.PostInterval, "post-interval", 1, "seconds between posts")
	return cmd
}

func (a *app) runNetwork(cmd *cobra.Command, o *networkOptions) error {
	settings := &o.settings
	if o.profile != "" {
		var err error
		if settings, err = config.LoadNetworkProfile(o.profile); err != nil {
			return err
		}
	}

	setBasic := settings.IP != "" || settings.DHCP
	setExtended := settings.PostHost != ""
	if !setBasic && !setExtended {
		return errors.New("nothing to configure, give --ip, --dhcp, --url or --profile")
	}

	// Refuse oversized settings before anything reaches the meter.
	if setExtended {
		if _, err := settings.ExtendedCommand(); err != nil {
			return err
		}
	}

	m, err := a.openMeter()
	if err != nil {
		return err
	}
	defer m.Close()

	if setBasic {
		if err := m.SetNetworkBasic(settings); err != nil {
			return err
		}
	}
	if setExtended {
		if err := m.SetNetworkExtended(settings); err != nil {
			return err
		}
	}
	a.log.Info("Network settings written")
	return nil
}
