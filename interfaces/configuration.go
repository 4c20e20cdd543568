package interfaces

import "mtu/settings"

// ConfigurationSystem loads and saves the persisted tool settings.
type ConfigurationSystem interface {
	LoadConfiguration() error
	SaveConfiguration() error
}

type Configurable interface {
	// LoadConfiguration applies the loaded tool settings to the view model
	LoadConfiguration(tool settings.Tool)

	// SaveConfiguration copies the view model state into the settings to be stored
	SaveConfiguration(tool *settings.Tool)
}
