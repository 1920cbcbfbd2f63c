package features

// Reference data for text-pattern features. Read-only after startup.

// knownVendors are legitimate vendor names for similarity matching.
var knownVendors = []string{
	"Microsoft Corporation", "Apple Inc", "Google LLC", "Amazon Web Services",
	"IBM Corporation", "Oracle Corporation", "Salesforce Inc", "Adobe Systems",
	"Intel Corporation", "Cisco Systems", "Dell Technologies", "HP Inc",
}

// legitimateTerms are common legitimate invoice description phrases.
var legitimateTerms = []string{
	"software licensing", "cloud services", "consulting services",
	"hardware procurement", "maintenance support", "technical support",
}

// vagueTerms are negative indicators in descriptions.
var vagueTerms = []string{
	"miscellaneous", "various", "general", "emergency", "urgent",
}

// positiveWords and negativeWords form the sentiment lexicon.
var positiveWords = map[string]bool{
	"excellent": true, "professional": true, "reliable": true,
	"premium": true, "trusted": true, "quality": true,
	"comprehensive": true, "certified": true,
}

var negativeWords = map[string]bool{
	"urgent": true, "emergency": true, "immediate": true,
	"overdue": true, "penalty": true, "demand": true,
}
