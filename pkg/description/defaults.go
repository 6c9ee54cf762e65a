package description

// DefaultServiceVersions returns the service versions advertised when a
// configuration does not provide its own.
func DefaultServiceVersions() map[string]int {
	return map[string]int{
		"ci": 3,
		"ei": 2,
		"iz": 1,
		"ni": 1,
		"ro": 1,
	}
}

// DefaultInfo returns the device identity reported on /iz/info before the
// description's own info is overlaid.
func DefaultInfo() map[string]any {
	return map[string]any{
		"deviceID":      "402100386185005612",
		"eNumber":       "SR63EX28KE/11",
		"brand":         "SIEMENS",
		"vib":           "SR63EX28KE",
		"mac":           "C8-D7-78-43-F2-23",
		"haVersion":     "2.4",
		"swVersion":     "3.3.12.20211004153146",
		"hwVersion":     "2.2.0.5",
		"deviceType":    "Dishwasher",
		"deviceInfo":    "",
		"customerIndex": "11",
		"serialNumber":  "402100386185005612",
		"fdString":      "0210",
		"shipSki":       "5BB5C1AFEF70601FBD7EDDF6A4533D5397532FF2",
	}
}

// NetworkInfo returns the stub record answered on /ni/info.
func NetworkInfo() map[string]any {
	return map[string]any{
		"interfaceID": 0,
		"ipV4": map[string]any{
			"ipAddress":  "192.168.1.50",
			"prefixSize": 24,
			"gateway":    "192.168.1.1",
			"dnsServer":  "192.168.1.1",
		},
		"ipV6": map[string]any{
			"ipAddress":  "2001:a62:67b:3801:cad7:78ff:fe43:f223",
			"prefixSize": 64,
			"gateway":    "fe80::9ec7:a6ff:fefc:6da",
			"dnsServer":  "fd00::9ec7:a6ff:fefc:6da",
		},
		"type":       "WiFi",
		"ssid":       "nedzle",
		"rssi":       -63,
		"primary":    true,
		"status":     "CONNECTED",
		"configured": true,
		"euiAddress": "C8:D7:78:43:F2:23",
	}
}

// NetworkConfig returns the stub record answered on /ni/config.
func NetworkConfig() map[string]any {
	return map[string]any{
		"interfaceID":   0,
		"ssid":          "nedzle",
		"automaticIPv4": true,
		"automaticIPv6": true,
	}
}
