package metadata

import "time"

// BucketTypeMetadata describes a named bucket-type namespace. Buckets carry a
// type qualifier in their reference; the reserved type "default" exists
// implicitly and is never stored here.
type BucketTypeMetadata struct {
	Name       string            `json:"name"`
	Active     bool              `json:"active"` // only active types accept requests
	CreatedAt  time.Time         `json:"created_at"`
	Properties map[string]string `json:"properties,omitempty"`
}
