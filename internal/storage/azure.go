package storage

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/sirupsen/logrus"
)

const digestContentType = "text/plain; charset=utf-8"

// AzureStorage archives log digests as blobs in one container
type AzureStorage struct {
	client    *azblob.Client
	container string
}

var _ StorageInterface = (*AzureStorage)(nil)

// NewAzureStorage connects to accountName with the default Azure credential
// chain (managed identity in production) and creates container if needed
func NewAzureStorage(ctx context.Context, accountName, container string) (*AzureStorage, error) {
	if accountName == "" {
		return nil, fmt.Errorf("storage account name is required")
	}

	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azblob.NewClient(fmt.Sprintf("https://%s.blob.core.windows.net/", accountName), credential, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure blob client: %w", err)
	}

	return newAzureStorage(ctx, client, container)
}

func newAzureStorage(ctx context.Context, client *azblob.Client, container string) (*AzureStorage, error) {
	if container == "" {
		return nil, fmt.Errorf("storage container name is required")
	}

	_, err := client.CreateContainer(ctx, container, nil)
	switch {
	case err == nil:
		logrus.Infof("Created digest container %s", container)
	case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
		logrus.Debugf("Digest container %s already exists", container)
	default:
		return nil, fmt.Errorf("failed to create container %s: %w", container, err)
	}

	return &AzureStorage{client: client, container: container}, nil
}

// Store uploads data as a text blob, replacing any earlier blob of that name
func (s *AzureStorage) Store(ctx context.Context, filename string, data []byte) error {
	contentType := digestContentType
	_, err := s.client.UploadBuffer(ctx, s.container, filename, data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("failed to upload digest %s: %w", filename, err)
	}

	logrus.Infof("Archived %s to container %s", filename, s.container)
	return nil
}

// Retrieve downloads an archived digest
func (s *AzureStorage) Retrieve(ctx context.Context, filename string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, filename, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, fmt.Errorf("digest %s: %w", filename, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download digest %s: %w", filename, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read digest %s: %w", filename, err)
	}
	return data, nil
}

// List returns the blob names starting with prefix, sorted
func (s *AzureStorage) List(ctx context.Context, prefix string) ([]string, error) {
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})

	var names []string
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list digests: %w", err)
		}
		if page.Segment == nil {
			continue
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}

	sort.Strings(names)
	return names, nil
}

// Delete removes an archived digest. Removing a missing blob is not an error.
func (s *AzureStorage) Delete(ctx context.Context, filename string) error {
	_, err := s.client.DeleteBlob(ctx, s.container, filename, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("failed to delete digest %s: %w", filename, err)
	}
	return nil
}
