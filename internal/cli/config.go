package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dl-alexandre/gdbackup/internal/config"
	"github.com/dl-alexandre/gdbackup/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for managing gdbackup configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective configuration: defaults, then the config file, then GDBACKUP_* environment variables",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Use 'config show' to see available keys; lists are comma separated",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset configuration to defaults",
	Long:  "Reset all configuration settings to their default values",
	RunE:  runConfigReset,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configPathCmd)
}

// configView renders a configuration as key/value rows
type configView struct {
	cfg *config.Config
}

func (v configView) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.cfg)
}

func (v configView) Headers() []string { return []string{"Key", "Value"} }

func (v configView) Rows() [][]string {
	values, err := configValues(v.cfg)
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, formatConfigValue(values[k])})
	}
	return rows
}

func (v configView) EmptyMessage() string { return "No configuration" }

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), flags.OutputFormat, flags.Quiet, flags.Verbose)
	return out.WriteSuccess("config.show", configView{cfg: GetConfig()})
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg, err := config.Load(flags.Config)
	if err != nil {
		return invalidArgument(err.Error())
	}
	key, err := setConfigValue(cfg, args[0], args[1])
	if err != nil {
		return err
	}
	if err := cfg.Save(flags.Config); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeFilesystemFailure,
			fmt.Sprintf("Failed to save configuration: %v", err)).Build(), err)
	}

	out.Log("Configuration updated: %s = %s", key, args[1])
	return out.WriteSuccess("config.set", map[string]interface{}{
		"key":   key,
		"value": args[1],
	})
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), flags.OutputFormat, flags.Quiet, flags.Verbose)

	cfg := config.DefaultConfig()
	if err := cfg.Save(flags.Config); err != nil {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeFilesystemFailure,
			fmt.Sprintf("Failed to reset configuration: %v", err)).Build(), err)
	}

	out.Log("Configuration reset to defaults")
	return out.WriteSuccess("config.reset", configView{cfg: cfg})
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path := GetGlobalFlags().Config
	if path == "" {
		var err error
		if path, err = config.GetConfigPath(); err != nil {
			return err
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

// configValues returns the configuration keyed by its JSON names
func configValues(cfg *config.Config) (map[string]interface{}, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	values := make(map[string]interface{})
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// setConfigValue sets the key matching name (case-insensitive) to raw,
// parsed according to the key's current type, and validates the result.
// It returns the canonical key name.
func setConfigValue(cfg *config.Config, name, raw string) (string, error) {
	values, err := configValues(cfg)
	if err != nil {
		return "", err
	}

	// Unset optional keys are omitted from the JSON form
	known := map[string]interface{}{
		"impersonateUser": "",
		"historyPath":     "",
		"logFile":         "",
	}
	for k, v := range values {
		known[k] = v
	}

	key := ""
	for k := range known {
		if strings.EqualFold(k, name) {
			key = k
			break
		}
	}
	if key == "" {
		return "", invalidArgument(fmt.Sprintf("Unknown configuration key: %s", name))
	}

	switch known[key].(type) {
	case bool:
		values[key] = parseBool(raw)
	case float64:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", invalidArgument(fmt.Sprintf("%s must be an integer", key))
		}
		values[key] = n
	case []interface{}:
		values[key] = splitList(raw)
	default:
		values[key] = raw
	}

	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	updated := config.DefaultConfig()
	if err := json.Unmarshal(data, updated); err != nil {
		return "", invalidArgument(err.Error())
	}
	if err := updated.Validate(); err != nil {
		return "", invalidArgument(err.Error())
	}
	*cfg = *updated
	return key, nil
}

func formatConfigValue(v interface{}) string {
	switch val := v.(type) {
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return truncate(fmt.Sprint(val), 80)
	}
}

func invalidArgument(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, msg).Build())
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
