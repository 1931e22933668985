package wattsup

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Number of payload fields in a #v reply.
const versionFields = 8

// Layout of the firmware compile timestamp.
const compileLayout = "20060102150405"

var modelNames = map[int]string{
	0: "Standard",
	1: "PRO",
	2: "ES",
	3: ".NET",
	4: "Blind Module",
	5: "Pro ES",
}

var hardwareMajorNames = map[int]string{
	0: "Watts Up? (original)",
	1: "Watts Up? PRO",
	2: "Watts Up? .NET",
}

var hardwareMinorNames = map[int]string{
	0: "rev A",
	1: "rev B",
	2: "rev C",
	3: "rev D",
}

// VersionInfo holds the identifying information of a meter.
type VersionInfo struct {
	Model         string
	Memory        int
	HardwareMajor string
	HardwareMinor string
	FirmwareMajor int
	FirmwareMinor int
	Compiled      time.Time
	Checksum      string
}

func lookup(table map[int]string, code int) string {
	if name, ok := table[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown (%d)", code)
}

// ParseVersion decodes the payload of a #v reply.
func ParseVersion(l *Line) (*VersionInfo, error) {
	if err := l.Expect(versionFields); err != nil {
		return nil, err
	}

	ints := make([]int, 6)
	for i := range ints {
		n, err := strconv.Atoi(strings.TrimSpace(l.Fields[i]))
		if err != nil {
			return nil, &ProtocolError{
				Line:   l.String(),
				Reason: fmt.Sprintf("version field %d: %q is not a number", i, l.Fields[i]),
			}
		}
		ints[i] = n
	}

	compiled, err := time.Parse(compileLayout, strings.TrimSpace(l.Fields[6]))
	if err != nil {
		return nil, &ProtocolError{
			Line:   l.String(),
			Reason: fmt.Sprintf("compile time %q: %v", l.Fields[6], err),
		}
	}

	return &VersionInfo{
		Model:         lookup(modelNames, ints[0]),
		Memory:        ints[1],
		HardwareMajor: lookup(hardwareMajorNames, ints[2]),
		HardwareMinor: lookup(hardwareMinorNames, ints[3]),
		FirmwareMajor: ints[4],
		FirmwareMinor: ints[5],
		Compiled:      compiled,
		Checksum:      strings.TrimSpace(l.Fields[7]),
	}, nil
}

func (v *VersionInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Model:            %s\n", v.Model)
	fmt.Fprintf(&b, "Memory:           %d\n", v.Memory)
	fmt.Fprintf(&b, "Hardware:         %s, %s\n", v.HardwareMajor, v.HardwareMinor)
	fmt.Fprintf(&b, "Firmware:         %d.%d\n", v.FirmwareMajor, v.FirmwareMinor)
	fmt.Fprintf(&b, "Firmware built:   %s\n", v.Compiled.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Checksum:         %s\n", v.Checksum)
	return b.String()
}
