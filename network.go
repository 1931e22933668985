package wattsup

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Payload sizes of the basic and extended network replies.
const (
	networkBasicFields    = 7
	networkExtendedFields = 5
)

// NetworkInfo is the network configuration of a Watts Up? .NET meter.
type NetworkInfo struct {
	IP      string `yaml:"ip"`
	Gateway string `yaml:"gateway"`
	DNS1    string `yaml:"dns1"`
	DNS2    string `yaml:"dns2"`
	Netmask string `yaml:"netmask"`
	DHCP    bool   `yaml:"dhcp"`
	MAC     string `yaml:"-"`

	PostHost     string `yaml:"url"`
	PostPort     int    `yaml:"port"`
	PostFile     string `yaml:"post_file"`
	UserAgent    string `yaml:"user_agent"`
	PostInterval int    `yaml:"interval"`
}

// DecodeMAC turns "0A1B2C3D4E5F" into "0a:1b:2c:3d:4e:5f".
func DecodeMAC(s string) (string, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return "", err
	}
	bits := make([]string, len(b))
	for i, c := range b {
		bits[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(bits, ":"), nil
}

func parseFlag(s string) bool {
	s = strings.TrimSpace(s)
	return s == "1" || strings.EqualFold(s, "true")
}

// parseNetworkBasic fills in the fields of the #I,Q reply.
func (n *NetworkInfo) parseNetworkBasic(l *Line) error {
	if err := l.Expect(networkBasicFields); err != nil {
		return err
	}
	mac, err := DecodeMAC(l.Fields[6])
	if err != nil {
		return &ProtocolError{
			Line:   l.String(),
			Reason: fmt.Sprintf("mac address %q: %v", l.Fields[6], err),
		}
	}
	n.IP = l.Fields[0]
	n.Gateway = l.Fields[1]
	n.DNS1 = l.Fields[2]
	n.DNS2 = l.Fields[3]
	n.Netmask = l.Fields[4]
	n.DHCP = parseFlag(l.Fields[5])
	n.MAC = mac
	return nil
}

// parseNetworkExtended fills in the fields of the #I,E reply.
func (n *NetworkInfo) parseNetworkExtended(l *Line) error {
	if err := l.Expect(networkExtendedFields); err != nil {
		return err
	}
	port, err := strconv.Atoi(strings.TrimSpace(l.Fields[1]))
	if err != nil {
		return &ProtocolError{Line: l.String(), Reason: "post port is not a number"}
	}
	interval, err := strconv.Atoi(strings.TrimSpace(l.Fields[4]))
	if err != nil {
		return &ProtocolError{Line: l.String(), Reason: "post interval is not a number"}
	}
	n.PostHost = l.Fields[0]
	n.PostPort = port
	n.PostFile = l.Fields[2]
	n.UserAgent = l.Fields[3]
	n.PostInterval = interval
	return nil
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// BasicCommand returns the command that writes the basic settings.
func (n *NetworkInfo) BasicCommand() string {
	return Command("set-network-basic", n.IP, n.Gateway, n.DNS1, n.DNS2,
		n.Netmask, boolFlag(n.DHCP))
}

// ExtendedCommand returns the command that writes the post settings,
// or a *ValidationError if a string is too long for the meter.
func (n *NetworkInfo) ExtendedCommand() (string, error) {
	if len(n.PostHost) > MaxNetworkStringLen {
		return "", &ValidationError{Field: "url", Value: n.PostHost, Max: MaxNetworkStringLen}
	}
	if len(n.PostFile) > MaxNetworkStringLen {
		return "", &ValidationError{Field: "post file", Value: n.PostFile, Max: MaxNetworkStringLen}
	}
	return Command("set-network-extended", n.PostHost, n.PostPort, n.PostFile,
		n.UserAgent, n.PostInterval), nil
}

func (n *NetworkInfo) String() string {
	dhcp := "off"
	if n.DHCP {
		dhcp = "on"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "IP address:       %s\n", n.IP)
	fmt.Fprintf(&b, "Gateway:          %s\n", n.Gateway)
	fmt.Fprintf(&b, "DNS 1:            %s\n", n.DNS1)
	fmt.Fprintf(&b, "DNS 2:            %s\n", n.DNS2)
	fmt.Fprintf(&b, "Netmask:          %s\n", n.Netmask)
	fmt.Fprintf(&b, "DHCP:             %s\n", dhcp)
	fmt.Fprintf(&b, "MAC address:      %s\n", n.MAC)
	fmt.Fprintf(&b, "POST host:        %s\n", n.PostHost)
	fmt.Fprintf(&b, "POST port:        %d\n", n.PostPort)
	fmt.Fprintf(&b, "POST file:        %s\n", n.PostFile)
	fmt.Fprintf(&b, "User agent:       %s\n", n.UserAgent)
	fmt.Fprintf(&b, "POST interval:    %d s\n", n.PostInterval)
	return b.String()
}
