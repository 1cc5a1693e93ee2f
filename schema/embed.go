package schema

import _ "embed"

// PlaneV1Schema contains the JSON schema for plane manifests.
//
//go:embed plane.v1.json
var PlaneV1Schema []byte
