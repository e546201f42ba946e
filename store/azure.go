package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"

	"github.com/guidewire-oss/cda-deltasync/model"
)

// azureGateway is the Azure Blob/DFS backend. Credential resolution
// mirrors evalgo-org-eve's use of azidentity for Microsoft Graph: a
// client-secret credential when SOURCE_/TARGET_AZURE_CLIENT_SECRET is
// set, falling back to azidentity.NewDefaultAzureCredential (managed
// identity, az-cli login, environment) otherwise.
type azureGateway struct {
	containerURL string
	client       *container.Client
	accountName  string
	containerN   string
	cap          int
}

// NewAzureGateway builds a Gateway backed by an Azure Blob/DFS container.
func NewAzureGateway(creds Credentials, containerName string, retryCap int) (Gateway, error) {
	cred, err := azureCredential(creds)
	if err != nil {
		return nil, err
	}
	serviceURL := "https://" + creds.AzureStorageAccount + ".blob.core.windows.net/"
	client, err := container.NewClient(serviceURL+containerName, cred, nil)
	if err != nil {
		return nil, err
	}
	return &azureGateway{
		containerURL: serviceURL + containerName,
		client:       client,
		accountName:  creds.AzureStorageAccount,
		containerN:   containerName,
		cap:          retryCap,
	}, nil
}

func azureCredential(creds Credentials) (azcore.TokenCredential, error) {
	if creds.AzureClientSecret != "" {
		return azidentity.NewClientSecretCredential(creds.AzureTenantID, creds.AzureClientID, creds.AzureClientSecret, nil)
	}
	return azidentity.NewDefaultAzureCredential(nil)
}

func (g *azureGateway) Scheme() string { return "abfs" }
func (g *azureGateway) Bucket() string { return g.containerN }

func (g *azureGateway) List(ctx context.Context, prefix string, recursive bool) ([]Object, error) {
	var objects []Object
	err := withRetry(ctx, g.cap, func() error {
		objects = objects[:0]
		opts := &container.ListBlobsFlatOptions{Prefix: &prefix}
		if !recursive {
			pager := g.client.NewListBlobsHierarchyPager("/", &container.ListBlobsHierarchyOptions{Prefix: &prefix})
			for pager.More() {
				page, err := pager.NextPage(ctx)
				if err != nil {
					return classifyAzureError(prefix, err)
				}
				for _, item := range page.Segment.BlobItems {
					objects = append(objects, Object{Key: *item.Name, Size: *item.Properties.ContentLength})
				}
				for _, pfx := range page.Segment.BlobPrefixes {
					objects = append(objects, Object{Key: *pfx.Name})
				}
			}
			return nil
		}
		pager := g.client.NewListBlobsFlatPager(opts)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				return classifyAzureError(prefix, err)
			}
			for _, item := range page.Segment.BlobItems {
				objects = append(objects, Object{Key: *item.Name, Size: *item.Properties.ContentLength})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return objects, nil
}

func (g *azureGateway) Head(ctx context.Context, key string) (ObjectInfo, error) {
	var info ObjectInfo
	err := withRetry(ctx, g.cap, func() error {
		props, err := g.client.NewBlobClient(key).GetProperties(ctx, nil)
		if err != nil {
			return classifyAzureError(key, err)
		}
		info = ObjectInfo{Size: derefInt64(props.ContentLength), ETag: string(derefETag(props.ETag))}
		return nil
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	return info, nil
}

func (g *azureGateway) Get(ctx context.Context, key string, rng *ByteRange) ([]byte, error) {
	var body []byte
	err := withRetry(ctx, g.cap, func() error {
		opts := &blob.DownloadStreamOptions{}
		if rng != nil {
			opts.Range = blob.HTTPRange{Offset: rng.Start, Count: rng.End - rng.Start}
		}
		resp, err := g.client.NewBlobClient(key).DownloadStream(ctx, opts)
		if err != nil {
			return classifyAzureError(key, err)
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return classifyAzureError(key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (g *azureGateway) Put(ctx context.Context, key string, data []byte, ifNoneMatch bool) error {
	return withRetry(ctx, g.cap, func() error {
		opts := &blob.UploadStreamOptions{}
		if ifNoneMatch {
			star := azcore.ETag("*")
			opts.AccessConditions = &blob.AccessConditions{
				ModifiedAccessConditions: &blob.ModifiedAccessConditions{IfNoneMatch: &star},
			}
		}
		_, err := g.client.NewBlockBlobClient(key).UploadStream(ctx, bytes.NewReader(data), opts)
		if err != nil {
			if ifNoneMatch && isAzureConditionFailed(err) {
				return &model.StoreError{Kind: model.KindConflict, Key: key, Err: err}
			}
			return classifyAzureError(key, err)
		}
		return nil
	})
}

func (g *azureGateway) Delete(ctx context.Context, key string) error {
	return withRetry(ctx, g.cap, func() error {
		_, err := g.client.NewBlobClient(key).Delete(ctx, nil)
		if err != nil && !isAzureNotFound(err) {
			return classifyAzureError(key, err)
		}
		return nil
	})
}

func (g *azureGateway) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.Head(ctx, key)
	if model.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefETag(p *azcore.ETag) azcore.ETag {
	if p == nil {
		return ""
	}
	return *p
}

func isAzureConditionFailed(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.ErrorCode == string(bloberror.ConditionNotMet) || respErr.StatusCode == 409 || respErr.StatusCode == 412
	}
	return strings.Contains(err.Error(), "ConditionNotMet")
}

func isAzureNotFound(err error) bool {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 404
	}
	return false
}

func classifyAzureError(key string, err error) error {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case 404:
			return &model.StoreError{Kind: model.KindNotFound, Key: key, Err: err}
		case 401, 403:
			return &model.StoreError{Kind: model.KindAccessDenied, Key: key, Err: err}
		case 409, 412:
			return &model.StoreError{Kind: model.KindConflict, Key: key, Err: err}
		}
	}
	return &model.StoreError{Kind: model.KindTransient, Key: key, Err: err}
}
