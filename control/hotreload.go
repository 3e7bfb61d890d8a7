// control/hotreload.go
// Reloads the active configuration from its TOML file.

package control

// ReloadFile re-reads path and installs it. The store keeps its previous
// config when the file is unreadable or invalid.
func (cs *ConfigStore) ReloadFile(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	return cs.Update(cfg)
}
