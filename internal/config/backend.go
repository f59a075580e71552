package config

// Backend is the persistent store behind `querybot config set`. Values are
// kept as strings and parsed against the key's type on load.
type Backend interface {
	Get(key string) (val string, ok bool, err error)
	Set(key, val string) error
	Delete(key string) error
}
