// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mnlk/terrastrokes/internal/storage"
)

// publishKeyFile is the JSON credential file shape for an S3-compatible
// publish target, the same {Endpoint, Key, Secret} layout the batch
// scheduler's download server reads its own keyfile from.
type publishKeyFile struct {
	Endpoint, Key, Secret string
}

// cmdPublish uploads every merged_* batch artifact in the working
// directory to an S3-compatible bucket under prefix (default "public"),
// the hand-off a download server later polls for serving.
// USAGE: publish <keyfile.json> <bucket> [prefix]
func cmdPublish(batch storage.Storage, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("USAGE: publish <keyfile.json> <bucket> [prefix]")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var kf publishKeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return err
	}
	client, err := minio.New(kf.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(kf.Key, kf.Secret, ""),
		Secure: true,
	})
	if err != nil {
		return err
	}
	client.SetAppInfo("TerrastrokesPublisher", "0.1")

	prefix := "public"
	if len(args) > 2 {
		prefix = args[2]
	}
	remote := storage.NewRemote(client, args[1], prefix)

	names, err := batch.List(".")
	if err != nil {
		return err
	}
	for _, name := range names {
		if !strings.HasPrefix(name, "merged_") {
			continue
		}
		if err := copyAcross(batch, remote, name, name); err != nil {
			return fmt.Errorf("publishing %s: %w", name, err)
		}
	}
	return nil
}
