package docstore

// Collection and document paths. These match the schema the mobile clients
// and the admin console already read, so they must not change.

const (
	GlobalSitesPath      = "sites"
	GlobalComplaintsPath = "Complaints"
)

func TeamMemberPath(email string) string {
	return "team/" + email
}

func TeamSitesPath(email string) string {
	return TeamMemberPath(email) + "/sites"
}

func TeamSitePath(email, siteID string) string {
	return TeamSitesPath(email) + "/" + siteID
}

func TeamComplaintsPath(email string) string {
	return TeamMemberPath(email) + "/complaints"
}

func TeamComplaintPath(email, complaintID string) string {
	return TeamComplaintsPath(email) + "/" + complaintID
}

func TeamSalesPath(email string) string {
	return TeamMemberPath(email) + "/sales"
}

func TeamSalePath(email, saleID string) string {
	return TeamSalesPath(email) + "/" + saleID
}

func GlobalSitePath(docID string) string {
	return GlobalSitesPath + "/" + docID
}

func GlobalComplaintPath(complaintID string) string {
	return GlobalComplaintsPath + "/" + complaintID
}

func CustomerPath(email string) string {
	return "Users/" + email
}

func CustomerComplaintPath(email, complaintID string) string {
	return CustomerPath(email) + "/Complaints/" + complaintID
}
