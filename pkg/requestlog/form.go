package requestlog

import "net/url"

// decodeForm stores each form field in dst. Fields sent once become strings,
// repeated fields become []any.
func decodeForm(data []byte, dst map[string]any) {
	values, err := url.ParseQuery(string(data))
	if err != nil {
		return
	}
	for k, v := range values {
		if len(v) == 1 {
			dst[k] = v[0]
			continue
		}
		list := make([]any, len(v))
		for i, s := range v {
			list[i] = s
		}
		dst[k] = list
	}
}
