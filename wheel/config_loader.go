package wheel

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// TableConfig is the YAML shape of a prize table file.
type TableConfig struct {
	Slots []PrizeSlot `mapstructure:"slots"`
}

// LoadTable reads a prize table from a YAML file and validates it. An empty
// path yields the compiled-in default table, so deployments only ship a file
// when the wheel actually differs from production.
func LoadTable(configPath string) (*Table, error) {
	if configPath == "" {
		return MustDefaultTable(), nil
	}

	var cfg TableConfig
	if err := loadInto(configPath, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Slots) == 0 {
		return nil, fmt.Errorf("prize table file %s defines no slots", configPath)
	}

	table, err := NewTable(cfg.Slots)
	if err != nil {
		return nil, fmt.Errorf("invalid prize table in %s: %w", configPath, err)
	}
	return table, nil
}

// loadInto loads a YAML config file into the provided struct pointer.
func loadInto(configPath string, out interface{}) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read prize table config: %w", err)
	}
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal prize table config: %w", err)
	}
	return nil
}
