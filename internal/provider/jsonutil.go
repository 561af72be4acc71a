package provider

import "encoding/json"

func jsonUnmarshal(payload string, dest any) error {
	return json.Unmarshal([]byte(payload), dest)
}
