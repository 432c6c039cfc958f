package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"
)

const configTemplate = `# Required. MonsterAPI key, sent as a bearer token with every request.
# The MONSTER_API_KEY environment variable overrides this value.
api_key = "{{MONSTER_API_KEY}}"

# Optional API base URL, default "https://api.monsterapi.ai/v1"
base_url = "https://api.monsterapi.ai/v1"

# Optional log level, default "info"
loglevel = "info"

# Optional delay between status polls in secs, default 1.
poll_interval = 1

# Optional time to wait for a job to finish in secs, default 60.
timeout = 60

# Optional upload size limit in MiB, default 8. Set to 0 to disable the check.
max_upload_size_mb = 8

# Optional. Check parameters of known models before submitting them, default true.
validate_params = true

# Optional number of jobs the batch command runs in parallel, default 4.
batch_workers = 4

# Optional. Endpoints used by 'upload-input'. The defaults point at the MonsterAPI playground.
[upload]
# presign_url = "https://monsterapi.ai/backend/v2playground/get-presigned-url-playgroundv2"
# file_url_url = "https://monsterapi.ai/backend/v2playground/get-file-url-playgroundv2"
# bucket = "qbfinetuningapigateway-s3uploadbucket-rkiyd0cpm7i0"

# Optional. Local gateway started by 'serve'.
[server]
bind_address = "127.0.0.1"
port = 9292
# Username and password are optional, but must be set together. When set, the
# gateway requires Basic Auth.
# username = "myusername"
# password = "mypassword"
`

// RenderConfig returns the config template with apiKey filled in.
func RenderConfig(apiKey string) string {
	return strings.Replace(configTemplate, "{{MONSTER_API_KEY}}", apiKey, 1)
}

// ReadAPIKey asks for the API key on out and reads it from in. Input is not
// echoed when in is a terminal.
func ReadAPIKey(in io.Reader, out io.Writer) (string, error) {
	fmt.Fprint(out, "MonsterAPI key: ")

	var key string
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		key = string(raw)
	} else {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		key = line
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("API key cannot be empty")
	}
	if strings.ContainsAny(key, "\"\\") {
		return "", errors.New("API key contains invalid characters")
	}
	return key, nil
}

// GenerateConfig writes a configuration file holding apiKey to configPath.
// An existing file is kept as configPath.bak.
func GenerateConfig(configPath, apiKey string) error {
	fmt.Printf("Generating config %s\n", configPath)

	config := RenderConfig(apiKey)

	// Check if config file already exists and back it up
	if _, err := os.Stat(configPath); err == nil {
		backupPath := configPath + ".bak"
		fmt.Printf("Backing up config %s\n", configPath)
		if err := os.Rename(configPath, backupPath); err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
	}

	// Create parent directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file holds a credential
	fmt.Printf("Writing %s\n", configPath)
	if err := os.WriteFile(configPath, []byte(config), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
