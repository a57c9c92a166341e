package discovery

import (
	"lmsbridge/internal/domain"
	"lmsbridge/internal/host"
)

// Well-known global names probed in every environment.
var (
	Scorm12Names   = []string{"API", "api", "SCORM_API", "scormAPI", "LMSApi"}
	Scorm2004Names = []string{"API_1484_11", "api_1484_11", "SCORM2004_API", "API_1484_11_Adapter"}
	XAPINames      = []string{"ADL", "TinCan", "tincan", "xAPI", "xapi", "XAPIWrapper", "lrs", "LRS"}
	// CustomNames are bare completion functions authoring tools expose.
	CustomNames = []string{"SetCompletion", "setCompletion", "completeCourse", "CompleteCourse",
		"markComplete", "MarkComplete", "courseComplete", "finishCourse", "doLMSComplete", "SCORM_SetCompleted"}
)

// xapiNested are the one-level child names probed under an xAPI global.
var xapiNested = []string{"XAPIWrapper", "lrs", "LRS", "tincan"}

// Minimal detection signatures. These are deliberately looser than the
// standards so partial hosts are still found.
var (
	scorm12Signature   = []string{"LMSInitialize", "LMSSetValue"}
	scorm2004Signature = []string{"Initialize", "SetValue"}
	xapiSendMethods    = []string{"sendStatement", "saveStatement"}
)

// Signature checks a probed ref and returns the matching handle kind.
type Signature func(ref host.Ref) (domain.ApiKind, bool)

// MatchScorm12 matches a SCORM 1.2 runtime object.
func MatchScorm12(ref host.Ref) (domain.ApiKind, bool) {
	return domain.APIScorm12, ref.HasMethods(scorm12Signature...)
}

// MatchScorm2004 matches a SCORM 2004 runtime object.
func MatchScorm2004(ref host.Ref) (domain.ApiKind, bool) {
	return domain.APIScorm2004, ref.HasMethods(scorm2004Signature...)
}

// MatchXAPI matches an object exposing a statement send function.
func MatchXAPI(ref host.Ref) (domain.ApiKind, bool) {
	for _, m := range xapiSendMethods {
		if ref.HasMethods(m) {
			return domain.APIXAPI, true
		}
	}
	return domain.APIXAPI, false
}

// MatchCustom matches a bare function.
func MatchCustom(ref host.Ref) (domain.ApiKind, bool) {
	return domain.APICustom, ref.Type == host.TypeFunction
}
