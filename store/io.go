package store

import (
	"bytes"
	"io"

	"github.com/aws/aws-sdk-go/aws/credentials"
)

func credentialsFromStatic(creds Credentials) *credentials.Credentials {
	return credentials.NewStaticCredentials(creds.AWSAccessKeyID, creds.AWSSecretAccessKey, creds.AWSSessionToken)
}

func newReadSeeker(body []byte) *bytes.Reader {
	return bytes.NewReader(body)
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
