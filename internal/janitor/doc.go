// Package janitor keeps the scratch and log directories bounded on a cron
// schedule.
package janitor
