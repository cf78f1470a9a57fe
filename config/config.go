package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

var starpipeHomeDir string
var Main *File
var Connections *File

func init() {
	Main = NewConfigFileWithDir(mustGetConfigHomeDir(), MainFileFullName)
	Connections = NewConfigFileWithDir(mustGetConfigHomeDir(), ConnectionsConfigFileFullName)
}

const (
	MainDir                         = ".starpipe"
	MainFileNamePrefix              = "config"
	MainFileNameExt                 = "yaml"
	MainFileFullName                = MainFileNamePrefix + "." + MainFileNameExt
	ConnectionsConfigFileNamePrefix = "connections"
	ConnectionsConfigFileNameExt    = "yaml"
	ConnectionsConfigFileFullName   = ConnectionsConfigFileNamePrefix + "." + ConnectionsConfigFileNameExt
)

// FileNotFoundError denotes failing to find configuration file.
type FileNotFoundError struct {
	name string
}

// Error returns the formatted configuration error.
func (f FileNotFoundError) Error() string {
	return fmt.Sprintf("config file %q not found", f.name)
}

type KeyNotFoundError struct {
	configFile string
	key        string
}

func (k KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in config file %q", k.key, k.configFile)
}

// File is a YAML file of keys and values kept in the config directory.
// Files are written with mode 0600 since connections contain credentials.
type File struct {
	Dirname      string
	FileName     string
	FilePrefix   string
	FileExt      string
	FullPath     string
	data         map[string]interface{}
	dataIsLoaded bool
	mu           sync.Mutex
}

func NewConfigFileWithDir(dirName string, filename string) *File {
	c := &File{Dirname: dirName, FileName: filename}
	c.FullPath = path.Join(dirName, filename)
	c.FileExt = strings.TrimLeft(path.Ext(filename), ".")
	c.FilePrefix = strings.TrimSuffix(c.FileName, "."+c.FileExt)
	c.data = make(map[string]interface{})
	return c
}

// Get will fetch the key from the config File into variable, out, which must be a pointer.
// Return KeyNotFoundError if we can't find the key.
func (c *File) Get(key string, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr {
		return errors.New("out must be a pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadData(); err != nil {
		return err
	}
	d, ok := c.data[key]
	if !ok { // if the key was not found...
		return KeyNotFoundError{c.FullPath, key}
	}
	// Set the value.
	if err := mapstructure.Decode(d, out); err != nil {
		return fmt.Errorf("error decoding key %q from config file %q: %w", key, c.FullPath, err)
	}
	return nil // we found the key so no error!
}

func (c *File) Set(key string, val interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadData(); err != nil {
		return err
	}
	// Store val the way it will be read back from disk.
	b, err := yaml.Marshal(val)
	if err != nil {
		return fmt.Errorf("error marshalling key %q: %w", key, err)
	}
	var v interface{}
	if err = yaml.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("error unmarshalling key %q: %w", key, err)
	}
	c.data[key] = v
	return c.saveData()
}

func (c *File) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadData(); err != nil {
		return err
	}
	if _, keyExists := c.data[key]; !keyExists {
		return KeyNotFoundError{c.FullPath, key}
	}
	delete(c.data, key)
	return c.saveData()
}

// GetAllKeys returns the sorted keys in the file.
func (c *File) GetAllKeys() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.loadData(); err != nil {
		return nil, err
	}
	retval := make([]string, 0, len(c.data))
	for k := range c.data {
		retval = append(retval, k)
	}
	sort.Strings(retval)
	return retval, nil
}

// loadData reads the file once; a missing file is treated as empty.
func (c *File) loadData() error {
	if c.dataIsLoaded {
		return nil
	}
	b, err := os.ReadFile(c.FullPath)
	if os.IsNotExist(err) { // if there is no file yet...
		c.dataIsLoaded = true
		return nil
	}
	if err != nil {
		return err
	}
	if err = yaml.Unmarshal(b, &c.data); err != nil {
		return fmt.Errorf("error parsing config file %q: %w", c.FullPath, err)
	}
	if c.data == nil { // if the file was empty...
		c.data = make(map[string]interface{})
	}
	c.dataIsLoaded = true
	return nil
}

func (c *File) saveData() error {
	b, err := yaml.Marshal(c.data)
	if err != nil {
		return fmt.Errorf("error marshalling data while writing config file %v: %v", c.FullPath, err)
	}
	if err := makeDir(c.Dirname); err != nil { // if we could not create the config directory...
		return err
	}
	return os.WriteFile(c.FullPath, b, 0600)
}

// Exists returns FileNotFoundError if the file has not been written yet.
func (c *File) Exists() error {
	info, err := os.Stat(c.FullPath)
	if os.IsNotExist(err) || (err == nil && info.IsDir()) {
		return FileNotFoundError{c.FullPath}
	}
	return err
}
