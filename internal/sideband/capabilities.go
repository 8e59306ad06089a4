package sideband

import "github.com/tidwall/gjson"

// flattenJSONObject decodes a flat JSON object (string/number/bool
// values) into a string map for MergePaneMetadata. Nested objects/arrays
// are serialized back to their raw JSON text rather than rejected, so an
// agent advertising a richer capability value doesn't get silently
// dropped.
func flattenJSONObject(body []byte) map[string]string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil
	}
	out := make(map[string]string)
	root.ForEach(func(k, v gjson.Result) bool {
		if v.Type == gjson.String {
			out[k.String()] = v.String()
		} else {
			out[k.String()] = v.Raw
		}
		return true
	})
	return out
}
