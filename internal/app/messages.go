package app

// Messages shown to the user when a flow stops early.
const (
	MsgLoginToDownload      = "Please log in to download builds"
	MsgLoginToViewBuilds    = "Please log in to view available builds"
	MsgLoginToUpload        = "Please log in to upload builds"
	MsgProfileNotReady      = "Device profile not registered. Please wait..."
	MsgNoBuilds             = "No builds available"
	MsgNoCompatibleBuild    = "No compatible build found for your device"
	MsgDownloadFailed       = "Failed to download build"
	MsgLoadBuildsFailed     = "Failed to load builds"
	MsgBuildNotFound        = "Build not found"
	MsgAdminRequired        = "Only admins can upload builds"
	MsgAdminRequiredToGrant = "Only admins can assign roles"
	MsgBusy                 = "A download is already in progress"
)
