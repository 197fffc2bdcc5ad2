package rbac

// Default policy. Account roles are admin/doctor/student; the per-schedule
// evaluator role (Supervisor/Examiner) is resolved by the evaluation engine,
// not here.
var RolePermissions = map[string][]string{
	"student": {
		"criteria:view-own",
		"grades:view-own",
		"schedule:view-own",
		"user:change_password",
	},
	"doctor": {
		"criteria:view",
		"schedule:view-own",
		"eval:submit",
		"eval:view-own",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
