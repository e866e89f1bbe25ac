package config

// Environment variable names shared between Load and the test helpers.
const (
	EnvAppEnv      = "STAGEPASS_APP_ENV"
	EnvPort        = "STAGEPASS_APP_PORT"
	EnvTicketPrice = "STAGEPASS_TICKET_PRICE_CENTS"
	EnvSuccessURL  = "STAGEPASS_SUCCESS_URL"
	EnvLeadsURL    = "STAGEPASS_LEADS_BASE_URL"
	EnvRedisURL    = "STAGEPASS_REDIS_URL"
	EnvStripeKey   = "STAGEPASS_STRIPE_API_KEY"
	EnvStripeEnv   = "STAGEPASS_STRIPE_ENV"
)
