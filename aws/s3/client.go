package s3

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// BasicClientFactory returns a BasicClient for the bucket.
type BasicClientFactory func(bucket, region string) (BasicClient, error)

// Client reads source objects by URI: s3://bucket/key goes to S3 while anything else is a local path or glob.
type Client struct {
	region   string
	newBasic BasicClientFactory
}

func NewClient(region string) *Client {
	return NewClientWithFactory(region, func(bucket, region string) (BasicClient, error) {
		return NewBasicClient(bucket, region, "")
	})
}

func NewClientWithFactory(region string, f BasicClientFactory) *Client {
	return &Client{region: region, newBasic: f}
}

func (c *Client) basic(uri string) (BasicClient, AwsS3Bucket, error) {
	b, err := ParseDSN(uri, c.region)
	if err != nil {
		return nil, b, err
	}
	bc, err := c.newBasic(b.Name, b.Region)
	return bc, b, err
}

// Exists returns nil if there is at least one object at uri.
func (c *Client) Exists(ctx context.Context, uri string) error {
	if IsS3URI(uri) {
		bc, b, err := c.basic(uri)
		if err != nil {
			return err
		}
		keys, err := bc.List(ctx, b.Prefix, 1)
		if err != nil {
			return fmt.Errorf("error listing %v: %w", b, err)
		}
		if len(keys) == 0 {
			return fmt.Errorf("no objects found at %v", uri)
		}
		return nil
	}
	return localExists(uri)
}

// Get returns the content of the object at uri.
func (c *Client) Get(ctx context.Context, uri string) ([]byte, error) {
	if IsS3URI(uri) {
		bc, b, err := c.basic(uri)
		if err != nil {
			return nil, err
		}
		data, err := bc.Get(ctx, b.Prefix)
		if err != nil {
			return nil, fmt.Errorf("error fetching %v: %w", uri, err)
		}
		return data, nil
	}
	data, err := os.ReadFile(uri)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error fetching %v: %w", uri, ErrKeyNotFound)
	}
	return data, err
}

var errFound = errors.New("found")

func localExists(path string) error {
	if strings.ContainsAny(path, "*?[") { // if we have a glob...
		// filepath.Glob does not understand **, so check the directory that precedes the first wildcard.
		dir := path[:strings.IndexAny(path, "*?[")]
		if dir == "" || strings.HasSuffix(dir, string(filepath.Separator)) {
			dir = filepath.Clean(dir + ".")
		} else {
			dir = filepath.Dir(dir)
		}
		return localExists(dir)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("no objects found at %v: %w", path, err)
	}
	if !info.IsDir() {
		return nil
	}
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".json") {
			return errFound
		}
		return nil
	})
	if errors.Is(err, errFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("no .json files found under %v", path)
}
