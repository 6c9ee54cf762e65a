package description

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
)

// profileInfo is the JSON file inside an appliance profile zip that names
// the description file and carries the appliance key.
type profileInfo struct {
	HaID                      string `json:"haId"`
	Type                      string `json:"type"`
	Brand                     string `json:"brand"`
	Vib                       string `json:"vib"`
	Key                       string `json:"key"`
	DeviceDescriptionFileName string `json:"deviceDescriptionFileName"`
	FeatureMappingFileName    string `json:"featureMappingFileName"`
}

// redactedPSK is what Home Assistant diagnostics write in place of the key.
const redactedPSK = "**REDACTED**"

// configEntry is a Home Assistant config entry diagnostics export.
type configEntry struct {
	Data struct {
		EntryData struct {
			PSK         string          `json:"psk"`
			Description json.RawMessage `json:"description"`
		} `json:"entry_data"`
		ApplianceState struct {
			Entities        []map[string]any `json:"entities"`
			ServiceVersions map[string]int   `json:"service_versions"`
		} `json:"appliance_state"`
	} `json:"data"`
}

// snapshotDoc mirrors the persisted snapshot layout.
type snapshotDoc struct {
	Description json.RawMessage  `json:"description"`
	PSK         string           `json:"psk64"`
	Services    map[string]int   `json:"services"`
	State       []map[string]any `json:"state"`
}

// LoadUpload decodes an uploaded file into a Bundle. The format is detected
// from the file name and content: profile zip, config entry JSON, snapshot
// JSON or a bare description JSON. psk is used when the file does not carry
// its own key.
func LoadUpload(filename string, data []byte, psk string) (*Bundle, error) {
	ext := strings.ToLower(path.Ext(filename))
	switch {
	case ext == ".zip" || bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return loadProfileZip(data, psk)
	case ext == ".xml":
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	return loadJSON(data, psk)
}

func loadJSON(data []byte, psk string) (*Bundle, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}

	if _, ok := top["data"]; ok {
		var entry configEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("%w: config entry: %v", ErrInvalidDescription, err)
		}
		ed, state := entry.Data.EntryData, entry.Data.ApplianceState
		if len(ed.Description) == 0 || string(ed.Description) == "null" {
			return nil, fmt.Errorf("%w: config entry has no description", ErrInvalidDescription)
		}
		desc, err := Parse(ed.Description)
		if err != nil {
			return nil, err
		}
		entryPSK := ed.PSK
		if entryPSK == redactedPSK {
			entryPSK = ""
		}
		return &Bundle{
			Description: desc,
			PSK:         firstNonEmpty(entryPSK, psk),
			Services:    state.ServiceVersions,
			State:       state.Entities,
		}, nil
	}

	if _, ok := top["description"]; ok {
		var snap snapshotDoc
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("%w: snapshot: %v", ErrInvalidDescription, err)
		}
		desc, err := Parse(snap.Description)
		if err != nil {
			return nil, err
		}
		return &Bundle{
			Description: desc,
			PSK:         firstNonEmpty(snap.PSK, psk),
			Services:    snap.Services,
			State:       snap.State,
		}, nil
	}

	desc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return &Bundle{Description: desc, PSK: psk}, nil
}

func loadProfileZip(data []byte, psk string) (*Bundle, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescription, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[path.Base(f.Name)] = f
	}

	var info *profileInfo
	for name, f := range files {
		if !strings.EqualFold(path.Ext(name), ".json") {
			continue
		}
		content, err := readZipFile(f)
		if err != nil {
			return nil, err
		}
		var candidate profileInfo
		if json.Unmarshal(content, &candidate) == nil && candidate.DeviceDescriptionFileName != "" {
			info = &candidate
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("%w: profile zip has no info file", ErrInvalidDescription)
	}

	descFile, ok := files[path.Base(info.DeviceDescriptionFileName)]
	if !ok {
		return nil, fmt.Errorf("%w: %s not found in zip", ErrInvalidDescription, info.DeviceDescriptionFileName)
	}
	if strings.EqualFold(path.Ext(descFile.Name), ".xml") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, descFile.Name)
	}

	content, err := readZipFile(descFile)
	if err != nil {
		return nil, err
	}
	desc, err := Parse(content)
	if err != nil {
		return nil, err
	}

	if desc.Info == nil {
		desc.Info = make(map[string]any)
	}
	setIfMissing(desc.Info, "deviceID", info.HaID)
	setIfMissing(desc.Info, "deviceType", info.Type)
	setIfMissing(desc.Info, "brand", info.Brand)
	setIfMissing(desc.Info, "vib", info.Vib)

	return &Bundle{Description: desc, PSK: firstNonEmpty(info.Key, psk)}, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func setIfMissing(m map[string]any, key, value string) {
	if value == "" {
		return
	}
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
