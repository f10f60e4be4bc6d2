package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Stdin is read by AskForConfirmationDefaultYes.
var Stdin io.Reader = os.Stdin

// AskForConfirmationDefaultYes prompts on stdout and reads one answer line. An
// empty answer counts as yes.
func AskForConfirmationDefaultYes(s string) bool {
	reader := bufio.NewReader(Stdin)

	fmt.Printf("%s [Y/n]: ", s)

	response, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		log.Errorln(err)
		return false
	}

	switch strings.ToLower(strings.TrimSpace(response)) {
	case "y", "yes", "":
		return true
	default:
		return false
	}
}

// DumpOption writes opt as YAML to outputPath, creating the parent directory
// with 0700. An existing file is only replaced after confirmation, unless
// overwrite is set. It reports whether the file was written.
func DumpOption(opt interface{}, outputPath string, overwrite bool) (bool, error) {
	buffer, err := yaml.Marshal(opt)
	if err != nil {
		return false, fmt.Errorf("cannot marshal configuration: %w", err)
	}

	parentPath := path.Dir(outputPath)
	if _, err := os.Stat(parentPath); os.IsNotExist(err) {
		if err := os.MkdirAll(parentPath, 0700); err != nil {
			return false, fmt.Errorf("cannot create directory %s: %w", parentPath, err)
		}
	}

	if !overwrite {
		if _, err := os.Stat(outputPath); !os.IsNotExist(err) {
			if !AskForConfirmationDefaultYes("configuration " + outputPath + " already exist, overwrite?") {
				log.Infoln("abort")
				return false, nil
			}
		}
	}

	log.Infoln("writing configuration to", outputPath)
	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0600)
	if err != nil {
		return false, fmt.Errorf("cannot open %s: %w", outputPath, err)
	}

	w := bufio.NewWriter(f)
	if _, err = w.Write(buffer); err == nil {
		err = w.Flush()
	}
	if err != nil {
		_ = f.Close()
		return false, fmt.Errorf("cannot write configuration: %w", err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("cannot close %s: %w", outputPath, err)
	}
	return true, nil
}
