package faults

// Kind classifies every failure the core can record against a source.
type Kind string

const (
	Network    Kind = "network"
	Timeout    Kind = "timeout"
	HTTPStatus Kind = "http_status"
	Parse      Kind = "parse"
	Schema     Kind = "schema"
	StoreWrite Kind = "store_write"
	StoreRead  Kind = "store_read"
	CacheIO    Kind = "cache_io"
	Validator  Kind = "validator"
	Unknown    Kind = "unknown"
)

func (k Kind) String() string {
	return string(k)
}

// All kinds in reporting order.
var Kinds = []Kind{Network, Timeout, HTTPStatus, Parse, Schema, StoreWrite, StoreRead, CacheIO, Validator}
