package commands

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultProfile = "config"

func NewConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Manage ForkHound configuration",
		Long: `Manage configuration profiles under $HOME/.forkhound. The "config" profile
is the one loaded by default; others can be selected with --config.`,
	}

	cmd.AddCommand(newConfigureInitCommand())
	cmd.AddCommand(newConfigureShowCommand())
	cmd.AddCommand(newConfigureListCommand())
	cmd.AddCommand(newConfigureSetCommand())
	cmd.AddCommand(newConfigureGetCommand())
	return cmd
}

func newConfigureInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [profile]",
		Short: "Initialize a configuration profile with default values",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigureInit,
	}
	cmd.Flags().Bool("force", false, "Overwrite an existing profile without asking")
	return cmd
}

func newConfigureShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [profile]",
		Short: "Show a configuration profile",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runConfigureShow,
	}
}

func newConfigureListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available configuration profiles",
		RunE:  runConfigureList,
	}
}

func newConfigureSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: `Set a configuration value in the selected profile.
Supports dotted keys (e.g. "scan.file_workers") and basic type parsing:
- booleans: true/false
- integers/floats: 10, 3.14
- durations (for keys containing timeout|retention|delay|backoff|age|ttl): "30m", "10s"
- string lists: "a,b,c" -> ["a","b","c"]
The profile is validated before it is written.`,
		Args: cobra.ExactArgs(2),
		RunE: runConfigureSet,
	}
	cmd.Flags().StringP("profile", "p", defaultProfile, "Configuration profile")
	return cmd
}

func newConfigureGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigureGet,
	}
	cmd.Flags().StringP("profile", "p", defaultProfile, "Configuration profile")
	return cmd
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".forkhound"), nil
}

func profilePath(profile string) (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	profile = strings.TrimSpace(profile)
	if profile == "" {
		profile = defaultProfile
	}
	if strings.ContainsAny(profile, `/\`) {
		return "", fmt.Errorf("invalid profile name %q", profile)
	}
	return filepath.Join(dir, profile+".yaml"), nil
}

func profileArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return defaultProfile
}

func runConfigureInit(cmd *cobra.Command, args []string) error {
	path, err := profilePath(profileArg(args))
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			logrus.Warnf("Configuration file already exists: %s", path)
			ok, ierr := confirmOverwrite()
			if ierr != nil {
				return ierr
			}
			if !ok {
				logrus.Info("Configuration initialization cancelled")
				return nil
			}
		}
	}

	if err := models.DefaultConfig().Save(path); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	logrus.Infof("Configuration initialized: %s", path)
	return nil
}

func runConfigureShow(cmd *cobra.Command, args []string) error {
	path, err := profilePath(profileArg(args))
	if err != nil {
		return err
	}
	cfg := models.DefaultConfig()
	if err := cfg.Load(path); err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if cfg.Acquisition.GithubToken != "" {
		cfg.Acquisition.GithubToken = utils.MaskSensitiveData(cfg.Acquisition.GithubToken)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", path, out)
	return nil
}

func runConfigureList(cmd *cobra.Command, args []string) error {
	dir, err := configDir()
	if err != nil {
		return err
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("failed to list configuration files: %w", err)
	}
	if len(files) == 0 {
		logrus.Info("No configuration profiles found. Run 'forkhound configure init' to create one.")
		return nil
	}

	fmt.Println("Available configuration profiles:")
	for _, file := range files {
		fmt.Printf("  • %s\n", strings.TrimSuffix(filepath.Base(file), ".yaml"))
	}
	return nil
}

func runConfigureSet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	profile, _ := cmd.Flags().GetString("profile")
	path, err := profilePath(profile)
	if err != nil {
		return err
	}

	raw, err := readProfileMap(path)
	if err != nil {
		return err
	}
	val := parseValueForKey(key, args[1])
	setNested(raw, strings.Split(key, "."), val)

	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	cfg := models.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := cfg.Save(path); err != nil {
		return err
	}

	logrus.Infof("Set %s = %v in profile %s", key, val, profile)
	return nil
}

func runConfigureGet(cmd *cobra.Command, args []string) error {
	key := strings.TrimSpace(args[0])
	profile, _ := cmd.Flags().GetString("profile")
	path, err := profilePath(profile)
	if err != nil {
		return err
	}
	raw, err := readProfileMap(path)
	if err != nil {
		return err
	}

	var cur interface{} = utils.RedactSecrets(raw)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			cur = nil
			break
		}
		cur = m[part]
	}
	if cur == nil {
		fmt.Printf("%s = <unset>\n", key)
		return nil
	}
	fmt.Printf("%s = %v\n", key, cur)
	return nil
}

// readProfileMap returns the profile as a generic map, seeded from the
// defaults when the file does not exist yet.
func readProfileMap(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		data, err = yaml.Marshal(models.DefaultConfig())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return raw, nil
}

func setNested(dst map[string]interface{}, keys []string, val interface{}) {
	if len(keys) == 0 {
		return
	}
	if len(keys) == 1 {
		dst[keys[0]] = val
		return
	}
	k := keys[0]
	child, ok := dst[k].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
	}
	setNested(child, keys[1:], val)
	dst[k] = child
}

func parseValueForKey(key, s string) interface{} {
	trim := strings.TrimSpace(s)

	if strings.Contains(trim, ",") {
		parts := strings.Split(trim, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, t)
			}
		}
		return out
	}
	if strings.HasSuffix(key, "formats") || strings.HasSuffix(key, "excludes") || strings.HasSuffix(key, "allowed_hosts") {
		return []string{trim}
	}

	if b, err := strconv.ParseBool(trim); err == nil {
		return b
	}
	if i, err := strconv.Atoi(trim); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(trim, 64); err == nil {
		return f
	}

	if containsAny(strings.ToLower(key), []string{"timeout", "retention", "delay", "backoff", "age", "ttl"}) {
		if d, err := time.ParseDuration(trim); err == nil {
			return d.String()
		}
	}
	return trim
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func confirmOverwrite() (bool, error) {
	fmt.Print("Configuration file already exists. Overwrite? (y/N): ")
	reader := bufio.NewReader(os.Stdin)
	resp, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	resp = strings.TrimSpace(resp)
	return resp == "y" || resp == "Y", nil
}
