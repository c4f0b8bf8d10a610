package canvas

import (
	"encoding/json"
	"fmt"
)

type requestJSON struct {
	BackgroundSource string      `json:"backgroundSource"`
	FontFamily       string      `json:"fontFamily"`
	Images           []ImageSpec `json:"images"`
	Zip              bool        `json:"zip"`
	ZipName          string      `json:"zipName"`
	DeleteFolder     bool        `json:"deleteFolder"`
}

type imageSpecJSON struct {
	FileName string            `json:"fileName"`
	Layers   []json.RawMessage `json:"layers"`
}

type layerJSON struct {
	Type     string  `json:"type"`
	Text     string  `json:"text"`
	FontSize float64 `json:"fontSize"`
	ImgSrc   string  `json:"imgSrc"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// UnmarshalJSON decodes the flat request body, folding zip, zipName and
// deleteFolder into Zip.
func (r *CompositionRequest) UnmarshalJSON(b []byte) error {
	var in requestJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*r = CompositionRequest{
		BackgroundSource: in.BackgroundSource,
		FontFamily:       in.FontFamily,
		Images:           in.Images,
	}
	if in.Zip {
		if in.ZipName != "" {
			if err := ValidateName(in.ZipName); err != nil {
				return fmt.Errorf("zipName: %w", err)
			}
		}
		r.Zip = &ZipOptions{ArchiveName: in.ZipName, DeleteSourceFolder: in.DeleteFolder}
	}
	return nil
}

func (s *ImageSpec) UnmarshalJSON(b []byte) error {
	var in imageSpecJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if err := ValidateName(in.FileName); err != nil {
		return fmt.Errorf("fileName: %w", err)
	}
	layers := make([]Layer, 0, len(in.Layers))
	for i, raw := range in.Layers {
		l, err := decodeLayer(raw)
		if err != nil {
			return fmt.Errorf("%s: layer %d: %w", in.FileName, i, err)
		}
		layers = append(layers, l)
	}
	*s = ImageSpec{FileName: in.FileName, Layers: layers}
	return nil
}

func decodeLayer(raw json.RawMessage) (Layer, error) {
	var l layerJSON
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, err
	}
	switch l.Type {
	case "text":
		return TextLayer{Text: l.Text, FontSize: l.FontSize, X: l.X, Y: l.Y}, nil
	case "image", "img":
		return ImageLayer{Source: l.ImgSrc, Width: l.W, Height: l.H, X: l.X, Y: l.Y}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLayer, l.Type)
	}
}
