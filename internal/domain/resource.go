package domain

// Resource names a portfolio content collection managed from the dashboard.
type Resource string

const (
	ResourceProjects      Resource = "projects"
	ResourceProjectImages Resource = "project-images"
	ResourceSkills        Resource = "skills"
	ResourceSoftSkills    Resource = "soft-skills"
	ResourceEducation     Resource = "education"
	ResourceExperience    Resource = "experience"
	ResourceCertificates  Resource = "certificates"
	ResourceContacts      Resource = "contacts"
)

// Resources lists the collections in dashboard navigation order.
var Resources = []Resource{
	ResourceProjects,
	ResourceProjectImages,
	ResourceSkills,
	ResourceSoftSkills,
	ResourceEducation,
	ResourceExperience,
	ResourceCertificates,
	ResourceContacts,
}

// ParseResource validates a path segment against the known collections.
func ParseResource(v string) (Resource, bool) {
	for _, r := range Resources {
		if string(r) == v {
			return r, true
		}
	}
	return "", false
}
