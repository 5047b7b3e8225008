package services

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

var (
	s3Session *session.Session
	uploader  *s3manager.Uploader
	useS3     bool
	bucket    string
	reportDir string
)

// InitStorage initializes either S3 or local report storage based on
// configuration. Reconciliation reports are the only artifacts stored here.
func InitStorage() error {
	awsRegion := os.Getenv("AWS_REGION")
	awsAccessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	awsSecretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	bucket = os.Getenv("REPORTS_BUCKET")

	if awsRegion != "" && awsAccessKey != "" && awsSecretKey != "" && bucket != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(awsRegion),
			Credentials: credentials.NewStaticCredentials(
				awsAccessKey,
				awsSecretKey,
				"",
			),
		})
		if err != nil {
			return fmt.Errorf("failed to create AWS session: %v", err)
		}

		s3Session = sess
		uploader = s3manager.NewUploader(sess)
		useS3 = true

		fmt.Println("AWS S3 report storage initialized successfully")
		return nil
	}

	// Fallback to local storage
	useS3 = false
	reportDir = os.Getenv("REPORTS_DIR")
	if reportDir == "" {
		reportDir = "/app/reports"
	}
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %v", err)
	}

	fmt.Println("AWS S3 not configured. Using local report storage (not recommended for production)")
	return nil
}

// ArchiveReport stores a ledger report and returns its location.
func ArchiveReport(name string, data []byte) (string, error) {
	if useS3 {
		return archiveToS3(name, data)
	}
	return archiveLocally(name, data)
}

func archiveToS3(name string, data []byte) (string, error) {
	key := "reports/" + name
	result, err := uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload report to S3: %v", err)
	}
	return result.Location, nil
}

func archiveLocally(name string, data []byte) (string, error) {
	path := filepath.Join(reportDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %v", err)
	}
	return path, nil
}
