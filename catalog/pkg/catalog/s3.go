package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jonboulle/clockwork"
)

// S3SourceConfig configures an S3-compatible dataset source (AWS S3, MinIO, etc.).
type S3SourceConfig struct {
	Logger *slog.Logger
	// URI is s3://bucket/prefix.
	URI             string
	Region          string
	Endpoint        string // e.g. "http://localhost:9000" for MinIO, empty for AWS
	AccessKeyID     string // empty uses the default credential chain
	SecretAccessKey string
	SampleSize      int
	Concurrency     int
	Clock           clockwork.Clock

	// Client overrides the S3 client built from the AWS default config.
	Client s3.ListObjectsV2APIClient
}

func (cfg *S3SourceConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if !strings.HasPrefix(cfg.URI, "s3://") {
		return fmt.Errorf("uri must start with s3://: %q", cfg.URI)
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = DefaultSampleSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultScanConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return nil
}

// S3Source lists parquet and csv objects under a prefix and scans them through DuckDB httpfs.
type S3Source struct {
	log    *slog.Logger
	cfg    S3SourceConfig
	bucket string
	prefix string
	client s3.ListObjectsV2APIClient
	db     *sql.DB

	setupOnce sync.Once
	setupErr  error
	scanner   *duckScanner
}

func NewS3Source(ctx context.Context, cfg S3SourceConfig) (*S3Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate s3 source config: %w", err)
	}
	u, err := url.Parse(cfg.URI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse s3 uri: %w", err)
	}

	client := cfg.Client
	if client == nil {
		opts := []func(*awsconfig.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Region))
		}
		if cfg.AccessKeyID != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
				func(context.Context) (aws.Credentials, error) {
					return aws.Credentials{AccessKeyID: cfg.AccessKeyID, SecretAccessKey: cfg.SecretAccessKey}, nil
				},
			)))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
	}

	db, err := openDuckDB()
	if err != nil {
		return nil, err
	}

	return &S3Source{
		log:     cfg.Logger,
		cfg:     cfg,
		bucket:  u.Host,
		prefix:  strings.TrimPrefix(u.Path, "/"),
		client:  client,
		db:      db,
		scanner: &duckScanner{log: cfg.Logger, db: db, sampleSize: cfg.SampleSize},
	}, nil
}

func (s *S3Source) Close() error {
	return s.db.Close()
}

// list returns dataset references for every parquet or csv object under the prefix.
func (s *S3Source) list(ctx context.Context) ([]fileRef, error) {
	var refs []fileRef
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			format, ok := formatOf(key)
			if !ok {
				continue
			}
			refs = append(refs, fileRef{
				name:     datasetName(path.Base(key)),
				location: fmt.Sprintf("s3://%s/%s", s.bucket, key),
				format:   format,
			})
		}
	}
	slices.SortFunc(refs, func(a, b fileRef) int { return strings.Compare(a.location, b.location) })
	return refs, nil
}

// setup loads httpfs and registers an S3 secret in the scanner's DuckDB.
func (s *S3Source) setup(ctx context.Context) error {
	s.setupOnce.Do(func() {
		for _, stmt := range s.SetupSQL() {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.setupErr = fmt.Errorf("failed to run %q: %w", strings.SplitN(stmt, " (", 2)[0], err)
				return
			}
		}
	})
	return s.setupErr
}

// SetupSQL returns the DuckDB statements that make this source's objects readable.
// Engines reading the same datasets run them too.
func (s *S3Source) SetupSQL() []string {
	exts := []string{"httpfs"}
	if s.cfg.AccessKeyID == "" {
		exts = append(exts, "aws")
	}
	var stmts []string
	for _, ext := range exts {
		stmts = append(stmts, fmt.Sprintf("INSTALL '%s'", ext), fmt.Sprintf("LOAD '%s'", ext))
	}
	return append(stmts, s.secretSQL())
}

func (s *S3Source) secretSQL() string {
	var b strings.Builder
	b.WriteString("CREATE OR REPLACE SECRET ados_s3 (TYPE s3")
	if s.cfg.AccessKeyID != "" {
		fmt.Fprintf(&b, ", KEY_ID %s, SECRET %s", QuoteLiteral(s.cfg.AccessKeyID), QuoteLiteral(s.cfg.SecretAccessKey))
	} else {
		b.WriteString(", PROVIDER credential_chain")
	}
	if s.cfg.Endpoint != "" {
		endpoint := strings.TrimPrefix(strings.TrimPrefix(s.cfg.Endpoint, "http://"), "https://")
		fmt.Fprintf(&b, ", ENDPOINT %s, URL_STYLE 'path', USE_SSL %t", QuoteLiteral(endpoint), strings.HasPrefix(s.cfg.Endpoint, "https://"))
	}
	if s.cfg.Region != "" {
		fmt.Fprintf(&b, ", REGION %s", QuoteLiteral(s.cfg.Region))
	}
	b.WriteString(")")
	return b.String()
}

func (s *S3Source) Scan(ctx context.Context) (*Snapshot, error) {
	refs, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return NewSnapshot(nil, []string{fmt.Sprintf("no datasets found at %s", s.cfg.URI)}, s.cfg.Clock.Now()), nil
	}
	if err := s.setup(ctx); err != nil {
		return nil, err
	}
	datasets, warnings, err := scanAll(ctx, s.log, s.scanner, refs, s.cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(datasets, warnings, s.cfg.Clock.Now()), nil
}
