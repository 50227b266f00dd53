package genapi

import (
	"genbot/internal/domain"
)

// The two routes differ in endpoint, payload shape, and which tuning knobs
// are meaningful. Seedream pins resolution to 2k and takes bare image URLs;
// NanoBanana wraps text-to-image parameters in a "params" envelope and uses
// a flat payload for image-to-image.

type seedreamRequest struct {
	Prompt      string   `json:"prompt"`
	ImageURLs   []string `json:"image_urls"`
	Resolution  string   `json:"resolution"`
	AspectRatio string   `json:"aspect_ratio"`
}

type nanoBananaParams struct {
	Prompt       string       `json:"prompt"`
	AspectRatio  string       `json:"aspect_ratio"`
	NumImages    int          `json:"num_images"`
	InputImages  []inputImage `json:"input_images"`
	OutputFormat string       `json:"output_format"`
	Resolution   string       `json:"resolution,omitempty"`
}

type nanoBananaTextRequest struct {
	Params nanoBananaParams `json:"params"`
}

type inputImage struct {
	Type     string `json:"type"`
	ImageURL string `json:"image_url"`
}

// submitRequest builds the route-specific endpoint and JSON payload.
func submitRequest(route domain.Route, baseURL, prompt, aspectRatio string, imageURLs []string) (string, any) {
	switch route {
	case domain.RouteSeedream:
		urls := imageURLs
		if urls == nil {
			urls = []string{}
		}
		return baseURL + "/seedream/v4.5", seedreamRequest{
			Prompt:      prompt,
			ImageURLs:   urls,
			Resolution:  "2k",
			AspectRatio: aspectRatio,
		}
	default:
		if len(imageURLs) > 0 {
			inputs := make([]inputImage, 0, len(imageURLs))
			for _, u := range imageURLs {
				inputs = append(inputs, inputImage{Type: "image_url", ImageURL: u})
			}
			return baseURL + "/nano-banana", nanoBananaParams{
				Prompt:       prompt,
				AspectRatio:  aspectRatio,
				NumImages:    1,
				InputImages:  inputs,
				OutputFormat: "png",
			}
		}
		return baseURL + "/v1/text2image/nano-banana", nanoBananaTextRequest{
			Params: nanoBananaParams{
				Prompt:       prompt,
				AspectRatio:  aspectRatio,
				NumImages:    1,
				InputImages:  []inputImage{},
				OutputFormat: "png",
				Resolution:   "2k",
			},
		}
	}
}
