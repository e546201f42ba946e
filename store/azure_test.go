package store

import (
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/stretchr/testify/require"

	"github.com/guidewire-oss/cda-deltasync/model"
)

func TestClassifyAzureErrorMapsStatusCodes(t *testing.T) {
	require.True(t, model.IsNotFound(classifyAzureError("k", &azcore.ResponseError{StatusCode: 404})))
	require.True(t, model.IsAccessDenied(classifyAzureError("k", &azcore.ResponseError{StatusCode: 403})))
	require.True(t, model.IsAccessDenied(classifyAzureError("k", &azcore.ResponseError{StatusCode: 401})))
	require.True(t, model.IsConflict(classifyAzureError("k", &azcore.ResponseError{StatusCode: 409})))
	require.True(t, model.IsConflict(classifyAzureError("k", &azcore.ResponseError{StatusCode: 412})))
	require.True(t, model.IsTransient(classifyAzureError("k", &azcore.ResponseError{StatusCode: 500})))
}

func TestIsAzureConditionFailedMatchesErrorCodeOrStatus(t *testing.T) {
	require.True(t, isAzureConditionFailed(&azcore.ResponseError{ErrorCode: string(bloberror.ConditionNotMet)}))
	require.True(t, isAzureConditionFailed(&azcore.ResponseError{StatusCode: 412}))
	require.False(t, isAzureConditionFailed(&azcore.ResponseError{StatusCode: 500}))
}

func TestIsAzureNotFoundMatchesStatus(t *testing.T) {
	require.True(t, isAzureNotFound(&azcore.ResponseError{StatusCode: 404}))
	require.False(t, isAzureNotFound(&azcore.ResponseError{StatusCode: 500}))
}

func TestAzureGatewaySchemeAndBucket(t *testing.T) {
	gw := &azureGateway{containerN: "my-container"}
	require.Equal(t, "abfs", gw.Scheme())
	require.Equal(t, "my-container", gw.Bucket())
}
