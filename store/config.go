package store

// DynamoConfig holds configuration for DynamoStore.
type DynamoConfig struct {
	// Table is the single table holding every bucket.
	// Default: "docket_records"
	Table string

	// SoftDelete makes Delete set the record's TTL to now instead of
	// removing the item, leaving DynamoDB's TTL sweeper to reclaim it and
	// emitting a MODIFY stream event that stream handlers can react to.
	SoftDelete bool

	// Region, Profile and Endpoint are used by NewDynamoFromConfig.
	// Empty values fall back to the AWS SDK's default resolution.
	Region   string
	Profile  string
	Endpoint string
}

// DefaultDynamoConfig returns sensible defaults.
func DefaultDynamoConfig() DynamoConfig {
	return DynamoConfig{
		Table: "docket_records",
	}
}

// validate fills in defaults for empty values.
func (c *DynamoConfig) validate() {
	if c.Table == "" {
		c.Table = "docket_records"
	}
}

// S3Config holds configuration for S3Store.
type S3Config struct {
	// Bucket is the S3 bucket holding all records (required).
	Bucket string

	// Prefix is prepended to every object key.
	// Default: "docket"
	Prefix string

	// Region, Endpoint and static credentials are used by NewS3FromConfig.
	// A non-empty Endpoint switches to path-style addressing for
	// S3-compatible services.
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// DefaultS3Config returns sensible defaults. Bucket must still be set.
func DefaultS3Config() S3Config {
	return S3Config{
		Prefix: "docket",
	}
}

func (c *S3Config) validate() {
	if c.Prefix == "" {
		c.Prefix = "docket"
	}
}

// Options selects and configures a backend for Open.
type Options struct {
	// Backend is one of "memory", "sqlite", "dynamodb" or "s3".
	// Default: "memory"
	Backend string

	// Path is the SQLite database file.
	// Default: "docket.db"
	Path string

	Dynamo DynamoConfig
	S3     S3Config
}

func (o *Options) validate() {
	if o.Backend == "" {
		o.Backend = "memory"
	}
	if o.Path == "" {
		o.Path = "docket.db"
	}
	o.Dynamo.validate()
	o.S3.validate()
}
