// Package environment names the deployment stage of a meterkit process.
//
// Parse turns an APP_ENV value into one of Development, Staging or
// Production. The logger factory uses it to pick output format and level,
// and meterd attaches the result to request contexts with Middleware so
// handlers can branch on IsProduction.
package environment
