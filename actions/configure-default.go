package actions

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/config"
	"github.com/relloyd/starpipe/helper"
)

type DefaultAddConfig struct {
	ConfigFile ConnectionGetterSetter `errorTxt:"config-file" mandatory:"yes"`
	Key        string                 `errorTxt:"key" mandatory:"yes"`
	Value      string                 `errorTxt:"value" mandatory:"yes"`
	Force      bool
	Output     io.Writer
}

type DefaultRemoveConfig struct {
	ConfigFile ConnectionGetterSetter `errorTxt:"config-file" mandatory:"yes"`
	Key        string                 `errorTxt:"key" mandatory:"yes"`
	Output     io.Writer
}

// RunDefaultAdd adds key+value to the given config file.
// If cfg.Force is not set then it return an error when the key exists.
// The config file is created lazily when the value is saved.
func RunDefaultAdd(cfg *DefaultAddConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	var val string
	if err := cfg.ConfigFile.Get(cfg.Key, &val); err == nil && !cfg.Force { // if key exists and we're not allowed to overwrite...
		return fmt.Errorf("key %q exists, use force to update the value or remove it first", cfg.Key)
	} else if err != nil { // else there is an error...
		var keyNotFound config.KeyNotFoundError
		var fileNotFound config.FileNotFoundError
		if !errors.As(err, &keyNotFound) && !errors.As(err, &fileNotFound) { // if there was an unexpected error...
			return err
		}
	}
	if err := cfg.ConfigFile.Set(cfg.Key, cfg.Value); err != nil {
		return fmt.Errorf("error writing config file after adding: %v", err)
	}
	fmt.Fprintf(output(cfg.Output), "Key %q added\n", cfg.Key)
	return nil
}

// RunDefaultRemove removes a key from the given config file.
func RunDefaultRemove(cfg *DefaultRemoveConfig) error {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil { // if the basics were not supplied...
		return err
	}
	if err := cfg.ConfigFile.Delete(cfg.Key); err != nil {
		return fmt.Errorf("unable to delete key %q from config: %v", cfg.Key, err)
	}
	fmt.Fprintf(output(cfg.Output), "Key %q removed\n", cfg.Key)
	return nil
}

// RunDefaultList prints every key=value pair in the config file.
func RunDefaultList(configFile ConnectionGetterSetter, w io.Writer) error {
	keys, err := configFile.GetAllKeys()
	if err != nil {
		return err
	}
	for _, k := range keys { // for each key...
		var val string
		if err := configFile.Get(k, &val); err != nil {
			return err
		}
		fmt.Fprintf(output(w), "%v=%v\n", k, val)
	}
	return nil
}
