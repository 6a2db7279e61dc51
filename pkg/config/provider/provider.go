// Package provider abstracts where raw configuration bytes come from.
package provider

// Provider supplies raw configuration bytes and can notify on changes.
type Provider interface {
	// Load fetches the current configuration bytes.
	Load() ([]byte, error)

	// Watch registers a callback invoked whenever the underlying source
	// changes. Providers without change detection return an error.
	Watch(callback func()) error

	// Close releases any resources held by the provider.
	Close() error
}
