package genapi

import (
	"fmt"
	"strings"
)

// ExtractJobID pulls a pollable job identifier out of a submit response.
// Shapes are tried in a fixed order: top-level "id", "request_id", then
// "jobs[0].id". A payload matching none of them has no job to poll.
func ExtractJobID(payload map[string]any) (string, bool) {
	if id := stringField(payload, "id"); id != "" {
		return id, true
	}
	if id := stringField(payload, "request_id"); id != "" {
		return id, true
	}
	if job, ok := firstElement(payload["jobs"]); ok {
		if id := stringField(job, "id"); id != "" {
			return id, true
		}
	}
	return "", false
}

// ExtractResultURL pulls the generated image URL out of a completed payload.
// Order: images[0].url, result.images[0].url, result.url, url,
// jobs[*].results[0].url.
func ExtractResultURL(payload map[string]any) (string, bool) {
	if img, ok := firstElement(payload["images"]); ok {
		if url := stringField(img, "url"); url != "" {
			return url, true
		}
	}
	if result, ok := payload["result"].(map[string]any); ok {
		if img, ok := firstElement(result["images"]); ok {
			if url := stringField(img, "url"); url != "" {
				return url, true
			}
		}
		if url := stringField(result, "url"); url != "" {
			return url, true
		}
	}
	if url := stringField(payload, "url"); url != "" {
		return url, true
	}
	if jobs, ok := payload["jobs"].([]any); ok {
		for _, j := range jobs {
			job, ok := j.(map[string]any)
			if !ok {
				continue
			}
			if res, ok := firstElement(job["results"]); ok {
				if url := stringField(res, "url"); url != "" {
					return url, true
				}
			}
		}
	}
	return "", false
}

// extractStatus returns the effective job status from a status payload.
// The per-job status in jobs[0].status wins over the top-level one.
func extractStatus(payload map[string]any) string {
	if job, ok := firstElement(payload["jobs"]); ok {
		if s := stringField(job, "status"); s != "" {
			return strings.ToLower(s)
		}
	}
	return strings.ToLower(stringField(payload, "status"))
}

// extractErrorText surfaces whatever upstream error message the payload
// carries, if any.
func extractErrorText(payload map[string]any) string {
	for _, key := range []string{"error", "message", "detail"} {
		if s := stringField(payload, key); s != "" {
			return s
		}
	}
	if job, ok := firstElement(payload["jobs"]); ok {
		for _, key := range []string{"error", "message"} {
			if s := stringField(job, key); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstElement(v any) (map[string]any, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, false
	}
	m, ok := list[0].(map[string]any)
	return m, ok
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%v", v), ".0")
	default:
		return ""
	}
}
