package discovery

import (
	"fmt"
	"slices"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeTXT creates the TXT records of an announcement. Empty optional
// fields are left out.
func EncodeTXT(info *ApplianceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyBrand: info.Brand,
		TXTKeyHaID:  info.HaID,
	}
	if info.Type != "" {
		txt[TXTKeyType] = info.Type
	}
	if info.Vib != "" {
		txt[TXTKeyVib] = info.Vib
	}
	return txt
}

// DecodeTXT parses TXT records back into an announcement.
func DecodeTXT(txt TXTRecordMap) (*ApplianceInfo, error) {
	info := &ApplianceInfo{}
	var ok bool
	if info.Brand, ok = txt[TXTKeyBrand]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyBrand)
	}
	if info.HaID, ok = txt[TXTKeyHaID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyHaID)
	}
	info.Type = txt[TXTKeyType]
	info.Vib = txt[TXTKeyVib]
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if k == "" {
			continue
		}
		if !found {
			v = ""
		}
		txt[k] = v
	}
	return txt
}
