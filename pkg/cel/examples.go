package cel

// SkipRuleExamples are sample skip rules for the filtering section of the
// service configuration. A matching event is acknowledged without running
// its handler.
var SkipRuleExamples = map[string]string{
	"test_mode":            `!livemode`,
	"type_prefix":          `event_type.startsWith("charge.dispute.")`,
	"zero_amount_invoice":  `event_type == "invoice.paid" && has(object.amount_paid) && object.amount_paid == 0`,
	"metadata_flag":        `has(object.metadata) && has(object.metadata.skip_webhooks) && object.metadata.skip_webhooks == "true"`,
	"status_unchanged":     `!has(previous_attributes.status)`,
	"specific_customer":    `has(object.customer) && object.customer == "cus_internal"`,
	"subscription_invoice": `event_type.startsWith("invoice.") && has(object.subscription) && object.subscription != null`,
}
