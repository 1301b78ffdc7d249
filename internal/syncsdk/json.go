package syncsdk

import "github.com/goccy/go-json"

// wired into req.Client as the marshal/unmarshal pair.
var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
