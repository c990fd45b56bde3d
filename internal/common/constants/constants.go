// Package constants defines the constants shared between the dolar pipeline services.
package constants

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// FetchServiceCmdName is the name of the fetch service command.
	FetchServiceCmdName = "dolar-fetch-service"

	// IngestServiceCmdName is the name of the ingest service command.
	IngestServiceCmdName = "dolar-ingest-service"

	// WebServiceCmdName is the name of the web service command.
	WebServiceCmdName = "dolar-web-service"
)

// Feed and staging constants.
const (
	// DefaultFeedURL is the upstream BanRep mercado cambiario endpoint.
	DefaultFeedURL = "https://totoro.banrep.gov.co/estadisticas-economicas/rest/consultaDatosService/consultaMercadoCambiario"

	// DefaultRawBucket is the default object storage bucket for raw feed payloads.
	DefaultRawBucket = "dolar-raw"

	// RawObjectPrefix is the key prefix for staged raw payloads.
	RawObjectPrefix = "dolar-"

	// RawObjectSuffix is the key suffix for staged raw payloads.
	RawObjectSuffix = ".json"
)

// Database constants.
const (
	// RatesTable is the destination table for normalized exchange rate rows.
	RatesTable = "dolar"

	// DefaultDBPort is the default MySQL port.
	DefaultDBPort = 3306
)
