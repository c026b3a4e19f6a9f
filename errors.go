package exiletree

import "fmt"

// FetchError reports a failed hosted-paste resolution: a network error, a
// non-success HTTP status, or an empty response body.
type FetchError struct {
	URL    string
	Status int // HTTP status code, 0 if the request never completed
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DecodeError reports a malformed build code: bad base64, a corrupt deflate
// stream, or invalid XML. Stage names the step that failed.
type DecodeError struct {
	Stage string // "base64", "inflate", or "xml"
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode build code (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GraphNotFoundError reports that a tree version has no backing structure
// data in the configured GraphSource.
type GraphNotFoundError struct {
	Version string
}

func (e *GraphNotFoundError) Error() string {
	return fmt.Sprintf("tree version %q: no structure data", e.Version)
}

// LoadoutNotFoundError reports a switch to an unknown loadout id.
type LoadoutNotFoundError struct {
	ID string
}

func (e *LoadoutNotFoundError) Error() string {
	return fmt.Sprintf("loadout %q not found", e.ID)
}

// AssetLoadError reports a failed icon or illustration load. Always
// non-fatal: rendering degrades to a flat circle and the asset is cached as
// known-missing so it is never retried.
type AssetLoadError struct {
	Path string
	Err  error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load asset %s: %v", e.Path, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }
