package discovery_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/discovery"
)

func TestInfoFromDevice(t *testing.T) {
	info := discovery.InfoFromDevice(map[string]any{
		"brand":      "BOSCH",
		"deviceType": "Dishwasher",
		"vib":        "SMV6ZCX49E",
		"deviceID":   "012345678901234567",
		"swVersion":  3,
	}, 8443)

	want := discovery.ApplianceInfo{
		Brand: "BOSCH", Type: "Dishwasher", Vib: "SMV6ZCX49E", HaID: "012345678901234567", Port: 8443,
	}
	if *info != want {
		t.Errorf("InfoFromDevice() = %+v, want %+v", *info, want)
	}
	if got := info.InstanceName(); got != "BOSCH-SMV6ZCX49E-012345678901234567" {
		t.Errorf("InstanceName() = %q", got)
	}
}

func TestInstanceName(t *testing.T) {
	t.Run("SkipsEmptyParts", func(t *testing.T) {
		info := &discovery.ApplianceInfo{Brand: "SIEMENS", HaID: "42"}
		if got := info.InstanceName(); got != "SIEMENS-42" {
			t.Errorf("InstanceName() = %q", got)
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		info := &discovery.ApplianceInfo{Brand: "B", Vib: strings.Repeat("v", 80), HaID: "h"}
		if got := info.InstanceName(); len(got) != discovery.MaxInstanceNameLen {
			t.Errorf("len(InstanceName()) = %d, want %d", len(got), discovery.MaxInstanceNameLen)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		info discovery.ApplianceInfo
		want error
	}{
		{"Valid", discovery.ApplianceInfo{Brand: "B", HaID: "1"}, nil},
		{"NoBrand", discovery.ApplianceInfo{HaID: "1"}, discovery.ErrMissingRequired},
		{"NoHaID", discovery.ApplianceInfo{Brand: "B"}, discovery.ErrMissingRequired},
		{"BadPort", discovery.ApplianceInfo{Brand: "B", HaID: "1", Port: 70000}, discovery.ErrInvalidPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTXTRecords(t *testing.T) {
	info := &discovery.ApplianceInfo{Brand: "BOSCH", Type: "Oven", HaID: "7"}

	strs := discovery.TXTRecordsToStrings(discovery.EncodeTXT(info))
	want := []string{"brand=BOSCH", "haId=7", "type=Oven"}
	if strings.Join(strs, ",") != strings.Join(want, ",") {
		t.Errorf("TXT strings = %v, want %v", strs, want)
	}

	decoded, err := discovery.DecodeTXT(discovery.StringsToTXTRecords(append(strs, "flag", "=x")))
	if err != nil {
		t.Fatalf("DecodeTXT() error = %v", err)
	}
	if decoded.Brand != "BOSCH" || decoded.Type != "Oven" || decoded.HaID != "7" || decoded.Vib != "" {
		t.Errorf("DecodeTXT() = %+v", decoded)
	}

	if _, err := discovery.DecodeTXT(discovery.TXTRecordMap{"brand": "B"}); !errors.Is(err, discovery.ErrMissingRequired) {
		t.Errorf("DecodeTXT() without haId error = %v", err)
	}
}

func TestMDNSAdvertiserRejectsInvalidInfo(t *testing.T) {
	adv := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	err := adv.Advertise(t.Context(), &discovery.ApplianceInfo{})
	if !errors.Is(err, discovery.ErrMissingRequired) {
		t.Errorf("Advertise() error = %v, want ErrMissingRequired", err)
	}
	if err := adv.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
