package artifact

import (
	"bytes"
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const jsonContentType = "application/json"

// AzureStore keeps artifacts as block blobs in one container.
type AzureStore struct {
	client    *azblob.Client
	container string
	log       *zap.Logger
}

// NewAzure connects with a storage account connection string and makes sure
// the container exists.
func NewAzure(ctx context.Context, connectionString, container string) (*AzureStore, error) {
	if connectionString == "" || container == "" {
		return nil, eris.New("artifact: azure backend requires a connection string and container")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, eris.Wrap(err, "artifact: create azure client")
	}

	s := &AzureStore{
		client:    client,
		container: container,
		log:       zap.L().With(zap.String("component", "artifact.azure"), zap.String("container", container)),
	}
	if _, err := client.CreateContainer(ctx, container, nil); err != nil {
		if !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			return nil, eris.Wrapf(err, "artifact: create container %s", container)
		}
	}
	return s, nil
}

// Put uploads data under key, overwriting any existing blob.
func (s *AzureStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	contentType := jsonContentType
	opts := &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	}
	if _, err := s.client.UploadStream(ctx, s.container, key, bytes.NewReader(data), opts); err != nil {
		return eris.Wrapf(err, "artifact: upload %s", key)
	}
	s.log.Info("artifact written", zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Get downloads the blob at key.
func (s *AzureStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, eris.Wrapf(ErrNotFound, "artifact: %s", key)
		}
		return nil, eris.Wrapf(err, "artifact: download %s", key)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "artifact: read %s", key)
	}
	return data, nil
}

// Exists checks the blob's properties.
func (s *AzureStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := s.client.ServiceClient().
		NewContainerClient(s.container).
		NewBlobClient(key).
		GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, eris.Wrapf(err, "artifact: properties %s", key)
	}
	return true, nil
}
