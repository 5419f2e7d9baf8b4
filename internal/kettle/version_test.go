package kettle

import (
	"testing"

	"github.com/rygwdn/CosoriKettleBLE/internal/protocol"
)

func TestDetectVersion(t *testing.T) {
	tests := []struct {
		name        string
		hardwareRev string
		softwareRev string
		want        protocol.Version
	}{
		{
			name:        "legacy revision pair",
			hardwareRev: "1.0.00",
			softwareRev: "R0007V0012",
			want:        protocol.V0,
		},
		{
			name:        "legacy with trailing nuls from characteristic read",
			hardwareRev: "1.0.00\x00\x00",
			softwareRev: "R0007V0012\x00",
			want:        protocol.V0,
		},
		{
			name:        "legacy with stray whitespace",
			hardwareRev: " 1.0.00 ",
			softwareRev: "R0007V0012 ",
			want:        protocol.V0,
		},
		{
			name:        "current firmware",
			hardwareRev: "2.0.01",
			softwareRev: "R0011V0042",
			want:        protocol.V1,
		},
		{
			name:        "legacy hardware with newer software",
			hardwareRev: "1.0.00",
			softwareRev: "R0008V0001",
			want:        protocol.V1,
		},
		{
			name:        "legacy software on different hardware",
			hardwareRev: "1.1.00",
			softwareRev: "R0007V0012",
			want:        protocol.V1,
		},
		{
			name:        "empty revision strings",
			hardwareRev: "",
			softwareRev: "",
			want:        protocol.V1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectVersion(tt.hardwareRev, tt.softwareRev); got != tt.want {
				t.Errorf("DetectVersion(%q, %q) = %v, want %v",
					tt.hardwareRev, tt.softwareRev, got, tt.want)
			}
		})
	}
}
