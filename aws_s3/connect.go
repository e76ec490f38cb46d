package aws_s3

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sharedcode/doctxn"
)

type Config struct {
	// "http://127.0.0.1:9000"
	HostEndpointUrl string
	// "us-east-1"
	Region   string
	Username string
	Password string
	// KeyPrefix is prepended to every object key.
	KeyPrefix string
}

// ConfigFromDoctxn maps the s3 section of a doctxn.Config.
func ConfigFromDoctxn(c doctxn.S3Config) Config {
	return Config{
		HostEndpointUrl: c.HostEndpointUrl,
		Region:          c.Region,
		Username:        c.Username,
		Password:        c.Password,
		KeyPrefix:       c.KeyPrefix,
	}
}

// Connect to minio Server endpoint, or AWS S3 when no endpoint is set.
// Checksums are only computed when an operation requires them so plain S3 compatible
// servers accept the requests.
func Connect(config Config) *s3.Client {
	client := s3.NewFromConfig(aws.Config{Region: config.Region}, func(o *s3.Options) {
		if config.HostEndpointUrl != "" {
			o.BaseEndpoint = aws.String(config.HostEndpointUrl)
			o.UsePathStyle = true
		}
		o.Credentials = credentials.NewStaticCredentialsProvider(config.Username, config.Password, "")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return client
}
