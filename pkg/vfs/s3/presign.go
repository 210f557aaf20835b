package s3

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/driftfs/driftfs/pkg/controlplane/models"
	"github.com/driftfs/driftfs/pkg/vfs"
)

// PresignURL generates a time-limited URL for direct provider access.
// GET URLs optionally force an attachment disposition; PUT URLs authorize a
// single-object upload to the key.
func (d *Driver) PresignURL(ctx context.Context, mount *models.Mount, subPath string, opts vfs.PresignOptions) (*vfs.PresignResult, error) {
	logicalPath := vfs.JoinPath(mount.MountPath, subPath)

	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}
	expires := opts.ExpiresIn
	if expires <= 0 {
		expires = vfs.DefaultPresignExpiry
	}
	withExpiry := func(po *awss3.PresignOptions) { po.Expires = expires }
	key := d.keyFor(subPath)

	var (
		signedURL string
		err       error
	)
	switch method {
	case http.MethodGet:
		in := &awss3.GetObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
		}
		if opts.ForceDownload {
			in.ResponseContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", vfs.BaseName(subPath)))
		}
		req, reqErr := d.presign.PresignGetObject(ctx, in, withExpiry)
		if reqErr != nil {
			err = reqErr
		} else {
			signedURL = req.URL
		}
	case http.MethodPut:
		req, reqErr := d.presign.PresignPutObject(ctx, &awss3.PutObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
		}, withExpiry)
		if reqErr != nil {
			err = reqErr
		} else {
			signedURL = req.URL
		}
	default:
		return nil, vfs.NewBadRequestError("unsupported presign method " + method)
	}
	if err != nil {
		return nil, mapError(logicalPath, err)
	}

	return &vfs.PresignResult{
		URL:       signedURL,
		Method:    method,
		ExpiresAt: time.Now().Add(expires),
	}, nil
}
